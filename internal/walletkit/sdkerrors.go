package walletkit

// SDKError is a protocol reason code sent with rejections and disconnects.
type SDKError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var (
	ErrInvalidMethod           = SDKError{Code: 1001, Message: "Invalid method."}
	ErrUserRejected            = SDKError{Code: 5000, Message: "User rejected."}
	ErrUserRejectedChains      = SDKError{Code: 5001, Message: "User rejected chains."}
	ErrUserRejectedMethods     = SDKError{Code: 5002, Message: "User rejected methods."}
	ErrUnsupportedChains       = SDKError{Code: 5100, Message: "Unsupported chains."}
	ErrUnsupportedMethods      = SDKError{Code: 5101, Message: "Unsupported methods."}
	ErrUnsupportedEvents       = SDKError{Code: 5102, Message: "Unsupported events."}
	ErrUnsupportedAccounts     = SDKError{Code: 5103, Message: "Unsupported accounts."}
	ErrUnsupportedNamespaceKey = SDKError{Code: 5104, Message: "Unsupported namespace key."}
	ErrUserDisconnected        = SDKError{Code: 6000, Message: "User disconnected."}
)

func (e SDKError) Error() string { return e.Message }
