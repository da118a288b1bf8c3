package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Connection / capture
	FieldClientID = "client_id"
	FieldSinkKind = "sink_kind"

	// Service
	FieldService = "service"
)
