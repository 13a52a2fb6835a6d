package http

import "time"

// AgentSessionHeader carries the per-process operator token.
const AgentSessionHeader = "X-Agent-Session"

const (
	HTTPErrorForbiddenText      = "forbidden"
	HTTPErrorForbiddenHostText  = "forbidden host"
	HTTPErrorUnauthorizedText   = "unauthorized"
	HTTPErrorInvalidJSONText    = "invalid JSON"
	HTTPErrorApprovalsDisabled  = "approvals are not handled by this server"
	HTTPErrorInternalText       = "internal error"
	HTTPErrorUnknownApprovalTxt = "unknown approval"
)

const (
	JSONKeyOK        = "ok"
	JSONKeyError     = "error"
	JSONKeyStatus    = "status"
	JSONKeyApprovals = "approvals"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	corsMaxAge               = 10 * time.Minute
)
