package types

// Status is the universal result code shared by Executor, BlockChain, and
// MemPool. It is the single contract the three subsystems branch on; see
// spec §7 for the category breakdown (validation / transient / fatal).
type Status uint32

const (
	// StatusSuccess indicates the operation completed and any mutation
	// was applied.
	StatusSuccess Status = iota

	// Validation failures: non-retryable, per-tx or per-block.
	StatusSenderDoesNotExist
	StatusBalanceTooLow
	StatusInvalidSignature
	StatusInvalidNonce
	StatusWalletSignatureMismatch
	StatusInvalidMerkleRoot
	StatusInvalidDifficulty
	StatusInvalidBlockID
	StatusInvalidLastBlockHash
	StatusInvalidTransactionCount
	StatusBlockTimestampTooOld
	StatusBlockTimestampInFuture
	StatusIncorrectMiningFee
	StatusExtraMiningFee
	StatusNoMiningFee
	StatusHeaderHashInvalid
	StatusDuplicateTransaction
	StatusInvalidProofOfWork

	// Transient / retryable.
	StatusIsSyncing
	StatusQueueFull
	StatusAlreadyInQueue
	StatusExpiredTransaction
	StatusTransactionFeeTooLow

	// Infrastructural.
	StatusUnknownError
)

var statusNames = map[Status]string{
	StatusSuccess:                 "Success",
	StatusSenderDoesNotExist:      "SenderDoesNotExist",
	StatusBalanceTooLow:           "BalanceTooLow",
	StatusInvalidSignature:        "InvalidSignature",
	StatusInvalidNonce:            "InvalidNonce",
	StatusWalletSignatureMismatch: "WalletSignatureMismatch",
	StatusInvalidMerkleRoot:       "InvalidMerkleRoot",
	StatusInvalidDifficulty:       "InvalidDifficulty",
	StatusInvalidBlockID:          "InvalidBlockId",
	StatusInvalidLastBlockHash:    "InvalidLastBlockHash",
	StatusInvalidTransactionCount: "InvalidTransactionCount",
	StatusBlockTimestampTooOld:    "BlockTimestampTooOld",
	StatusBlockTimestampInFuture:  "BlockTimestampInFuture",
	StatusIncorrectMiningFee:      "IncorrectMiningFee",
	StatusExtraMiningFee:          "ExtraMiningFee",
	StatusNoMiningFee:             "NoMiningFee",
	StatusHeaderHashInvalid:       "HeaderHashInvalid",
	StatusDuplicateTransaction:    "DuplicateTransaction",
	StatusInvalidProofOfWork:      "InvalidProofOfWork",
	StatusIsSyncing:               "IsSyncing",
	StatusQueueFull:               "QueueFull",
	StatusAlreadyInQueue:          "AlreadyInQueue",
	StatusExpiredTransaction:      "ExpiredTransaction",
	StatusTransactionFeeTooLow:    "TransactionFeeTooLow",
	StatusUnknownError:            "UnknownError",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UnknownError"
}

// IsValidationFailure reports whether s belongs to the non-retryable
// validation category (as opposed to success, transient, or fatal).
func (s Status) IsValidationFailure() bool {
	switch s {
	case StatusSuccess, StatusIsSyncing, StatusQueueFull, StatusAlreadyInQueue,
		StatusExpiredTransaction, StatusTransactionFeeTooLow, StatusUnknownError:
		return false
	default:
		return true
	}
}

// IsRetryable reports whether s belongs to the transient category.
func (s Status) IsRetryable() bool {
	switch s {
	case StatusIsSyncing, StatusQueueFull, StatusAlreadyInQueue,
		StatusExpiredTransaction, StatusTransactionFeeTooLow:
		return true
	default:
		return false
	}
}

// Error implements the error interface so a Status can be returned
// directly from functions that also need to interoperate with
// github.com/pkg/errors-wrapped errors.
func (s Status) Error() string {
	return s.String()
}
