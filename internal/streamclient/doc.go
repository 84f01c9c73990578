// Package streamclient keeps a decoded event stream from one endpoint available
// across transport failures.
//
// A Subscription owns at most one live transport handle. When the handle fails it
// is closed and a single reconnect is scheduled after a fixed delay (3s by default);
// retries are unbounded and never back off. Payloads are delivered either verbatim
// (ModeRaw) or parsed as JSON (ModeJSON). A payload that fails to parse is reported
// through the error handler and the stream carries on.
//
//	sub, err := streamclient.New(streamclient.NewSSETransport(baseURL, nil)).
//		Start(ctx, "/sse/time", streamclient.ModeRaw, func(ev streamclient.Event) {
//			fmt.Println(ev.Raw)
//		}, nil)
//	...
//	sub.Stop()
package streamclient
