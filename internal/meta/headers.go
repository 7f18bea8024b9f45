package meta

const (
	HeaderRequestID       = "x-goog-spanner-request-id"
	HeaderResourcePrefix  = "google-cloud-resource-prefix"
	HeaderRouteToLeader   = "x-goog-spanner-route-to-leader"
	HeaderEndToEndTracing = "x-goog-spanner-end-to-end-tracing"
	HeaderAPIClient       = "x-goog-api-client"
)
