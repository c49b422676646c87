// ABOUTME: Play wire protocol package
// ABOUTME: Defines protocol messages and the WebSocket connection
// Package protocol implements the Play wire protocol.
//
// Provides message types and a WebSocket connection for talking to
// Play game and lobby servers.
//
// Example:
//
//	conn := protocol.NewConn(protocol.Config{URL: route.URL, SessionToken: token})
//	err := conn.Connect(ctx)
//	resp, err := conn.Request(ctx, protocol.CmdConv, protocol.OpAdd, req)
package protocol
