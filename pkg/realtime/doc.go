// Package realtime subscribes to the dashboard's server-push change stream.
//
// A Subscriber owns at most one open stream per token. Each inbound frame is
// parsed as a JSON envelope and routed by its "type" tag to the matching
// handler:
//
//	"vendors"         -> Handlers.Vendors
//	"purchase_orders" -> Handlers.PurchaseOrders
//	"users"           -> Handlers.Users
//
// Handlers run detached in their own goroutine; failures are logged and never
// affect the stream. Frames that are not valid JSON (heartbeats, comments) and
// unknown tags are dropped.
//
// A dropped transport moves the Subscriber to StateDisconnected. It does not
// redial on its own; call Reconnect or SetToken.
//
// Example usage:
//
//	sub := realtime.New(sse.NewDialer(client, logger), realtime.WithEndpoint(base+"/api/events"))
//	sub.SetHandlers(realtime.Handlers{Vendors: refetchVendors})
//	sub.SetToken(token)
//	defer sub.Close()
package realtime
