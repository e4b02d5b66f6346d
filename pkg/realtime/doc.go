// Package realtime implements a reconnecting publish/subscribe client.
//
// A Client owns at most one transport Session. Handlers registered with
// Subscribe survive reconnects: whenever the client is connected every
// registration is live, and after an involuntary disconnect the client
// redials with exponential backoff and restores them. Disconnect is
// terminal: it drops every registration and stops any pending reconnect.
//
// Basic usage:
//
//	client := realtime.New(transport, realtime.WithTokenProvider(tokens))
//	unsubscribe := client.Subscribe("/topic/jobs", func(m realtime.Message) {
//		var job jobs.Job
//		if err := m.Decode(&job); err == nil {
//			fmt.Println(job.Title)
//		}
//	})
//	defer unsubscribe()
//
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Disconnect()
package realtime
