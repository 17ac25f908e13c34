// ABOUTME: Network bridge for a running S/PDIF receiver
// ABOUTME: Package documentation
// Package bridge publishes a receiver's decoded audio over WebSocket.
//
// Wire the server into the receiver's event tap and attach the receiver
// for status:
//
//	srv := bridge.New(bridge.Config{Port: 8928, Name: "Studio"})
//	rcv, _ := rx.New(rx.Config{Line: in, Clock: in, OnEvent: srv.Feed})
//	srv.Attach(rcv)
//	go rcv.Run(ctx)
//	err := srv.Start()
//
// While the receiver is locked, every audio client gets a stream/start
// followed by 20ms chunks in the codec it negotiated. Losing lock or
// changing rate ends the stream; the next lock starts a new one.
package bridge
