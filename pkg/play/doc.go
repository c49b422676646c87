// ABOUTME: Package documentation for the Play client SDK
// ABOUTME: Describes the Client, Lobby, Room and Player lifecycle
// Package play is a client for realtime multiplayer rooms.
//
// A Client authorizes with a router, then either browses rooms through a
// Lobby or enters a Room. Room state changes only in response to the server:
// property writes merge the subset the server confirmed, membership follows
// join and leave notifications. Notifications are delivered one at a time in
// server order to the subscribers registered with the Client's On* methods.
//
// Example:
//
//	client, err := play.NewClient(play.Config{AppID: "demo", UserID: "alice", PlayServer: "localhost:8080", Insecure: true})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	if err := client.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	client.OnPlayerJoined(func(p *play.Player) { fmt.Println("joined:", p.UserID()) })
//
//	room, err := client.CreateRoom(ctx, "arena", play.NewRoomOptions(), nil)
package play
