package constants

const (
	AppName = "hedera-wallet-agent"

	FilePerm      = 0o600
	DirectoryPerm = 0o700
)
