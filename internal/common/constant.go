package common

const (
	// AuthorizationHeaderName is the HTTP header carrying "<scheme> <token>".
	AuthorizationHeaderName = "Authorization"

	// AuthorizationMetadataKey is the gRPC metadata key with the same format.
	AuthorizationMetadataKey = "authorization"

	// BearerScheme is the only accepted credential scheme.
	BearerScheme = "Bearer"

	// RequestIDHeaderName is echoed back on every HTTP response.
	RequestIDHeaderName = "X-Request-ID"

	// RoleUser and RoleAdmin are the roles known to the bundled routes.
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)
