package response

const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeGone            = 410 // 活动码已耗尽
	CodeLocked          = 423 // 活动未启用或不在有效期
	CodeTooManyRequests = 429
	CodeInternal        = 500
	CodeBadGateway      = 502
)
