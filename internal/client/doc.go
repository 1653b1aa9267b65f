// Package client is a small WebSocket client for the gateway's chat
// protocol.
//
// A Client wraps one authenticated connection. The send helpers cover the
// client-to-server frame types; Read returns decoded server frames one at a
// time. Typical use runs Read in its own goroutine and sends from wherever
// input originates:
//
//	c, err := client.Dial(ctx, "ws://localhost:8001", token)
//	if err != nil { ... }
//	defer c.Close()
//
//	go func() {
//		for {
//			frame, err := c.Read()
//			if err != nil {
//				return
//			}
//			render(frame)
//		}
//	}()
//
//	c.Subscribe(channelID)
//	c.SendMessage(channelID, "hello", "text", nil)
//
// Authentication happens at dial time via the token query parameter. The
// gateway accepts the upgrade before checking the token, so an invalid
// token appears as a policy-violation close on the first Read.
package client
