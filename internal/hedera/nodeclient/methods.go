package nodeclient

import (
	"github.com/hashgraph/hedera-protobufs-go/services"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func methodPath(service, method string) string {
	return "/" + service + "/" + method
}

var (
	cryptoService    = services.CryptoService_ServiceDesc.ServiceName
	contractService  = services.SmartContractService_ServiceDesc.ServiceName
	fileService      = services.FileService_ServiceDesc.ServiceName
	consensusService = services.ConsensusService_ServiceDesc.ServiceName
	tokenService     = services.TokenService_ServiceDesc.ServiceName
	scheduleService  = services.ScheduleService_ServiceDesc.ServiceName
	networkService   = services.NetworkService_ServiceDesc.ServiceName
	freezeService    = services.FreezeService_ServiceDesc.ServiceName
	utilService      = services.UtilService_ServiceDesc.ServiceName
)

// transactionMethods maps TransactionBody data field numbers to the gRPC
// method that accepts them. The body oneof does not name its service method,
// so the pairing is kept here.
var transactionMethods = map[protoreflect.FieldNumber]string{
	7:  methodPath(contractService, "contractCallMethod"),
	8:  methodPath(contractService, "createContract"),
	9:  methodPath(contractService, "updateContract"),
	11: methodPath(cryptoService, "createAccount"),
	12: methodPath(cryptoService, "cryptoDelete"),
	14: methodPath(cryptoService, "cryptoTransfer"),
	15: methodPath(cryptoService, "updateAccount"),
	16: methodPath(fileService, "appendContent"),
	17: methodPath(fileService, "createFile"),
	18: methodPath(fileService, "deleteFile"),
	19: methodPath(fileService, "updateFile"),
	22: methodPath(contractService, "deleteContract"),
	23: methodPath(freezeService, "freeze"),
	24: methodPath(consensusService, "createTopic"),
	25: methodPath(consensusService, "updateTopic"),
	26: methodPath(consensusService, "deleteTopic"),
	27: methodPath(consensusService, "submitMessage"),
	28: methodPath(networkService, "uncheckedSubmit"),
	29: methodPath(tokenService, "createToken"),
	31: methodPath(tokenService, "freezeTokenAccount"),
	32: methodPath(tokenService, "unfreezeTokenAccount"),
	33: methodPath(tokenService, "grantKycToTokenAccount"),
	34: methodPath(tokenService, "revokeKycFromTokenAccount"),
	35: methodPath(tokenService, "deleteToken"),
	36: methodPath(tokenService, "updateToken"),
	37: methodPath(tokenService, "mintToken"),
	38: methodPath(tokenService, "burnToken"),
	39: methodPath(tokenService, "wipeTokenAccount"),
	40: methodPath(tokenService, "associateTokens"),
	41: methodPath(tokenService, "dissociateTokens"),
	42: methodPath(scheduleService, "createSchedule"),
	43: methodPath(scheduleService, "deleteSchedule"),
	44: methodPath(scheduleService, "signSchedule"),
	45: methodPath(tokenService, "updateTokenFeeSchedule"),
	46: methodPath(tokenService, "pauseToken"),
	47: methodPath(tokenService, "unpauseToken"),
	48: methodPath(cryptoService, "approveAllowances"),
	49: methodPath(cryptoService, "deleteAllowances"),
	50: methodPath(contractService, "callEthereum"),
	52: methodPath(utilService, "prng"),
	53: methodPath(tokenService, "updateNfts"),
}

// queryMethods maps Query oneof field numbers to gRPC methods.
var queryMethods = map[protoreflect.FieldNumber]string{
	3:  methodPath(contractService, "contractCallLocalMethod"),
	4:  methodPath(contractService, "getContractInfo"),
	5:  methodPath(contractService, "ContractGetBytecode"),
	7:  methodPath(cryptoService, "cryptoGetBalance"),
	8:  methodPath(cryptoService, "getAccountRecords"),
	9:  methodPath(cryptoService, "getAccountInfo"),
	12: methodPath(fileService, "getFileContent"),
	13: methodPath(fileService, "getFileInfo"),
	14: methodPath(cryptoService, "getTransactionReceipts"),
	15: methodPath(cryptoService, "getTxRecordByTxID"),
	50: methodPath(consensusService, "getTopicInfo"),
	51: methodPath(networkService, "getVersionInfo"),
	52: methodPath(tokenService, "getTokenInfo"),
	53: methodPath(scheduleService, "getScheduleInfo"),
	55: methodPath(tokenService, "getTokenNftInfo"),
	57: methodPath(networkService, "getExecutionTime"),
	58: methodPath(networkService, "getAccountDetails"),
}
