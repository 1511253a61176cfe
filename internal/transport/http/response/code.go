package response

// 常见业务 系统级错误码（直接基于 HTTP 语义）
const (
	CodeOK          = 0
	CodeBadRequest  = 400
	CodeNotFound    = 404
	CodeTooMany     = 429
	CodeServerError = 500
	CodeTimeout     = 504
)

// CodeMsgMap 用于集中管理 code - msg
var CodeMsgMap = map[int]string{
	CodeOK:          "OK",
	CodeBadRequest:  "Bad Request",
	CodeNotFound:    "Not Found",
	CodeTooMany:     "Too Many Requests",
	CodeServerError: "Internal Server Error",
	CodeTimeout:     "Timeout",
}
