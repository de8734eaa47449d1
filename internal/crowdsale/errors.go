package crowdsale

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorKind классифицирует отказ операции.
type ErrorKind int

const (
	// KindAuthorization: вызов owner-only операции не владельцем.
	KindAuthorization ErrorKind = iota + 1
	// KindValidation: некорректные аргументы, например нулевой адрес или сумма ниже минимума.
	KindValidation
	// KindState: операция недопустима в текущей фазе или при текущих флагах.
	KindState
	// KindCapacity: превышение цели сбора или нехватка токенов для выплаты.
	KindCapacity
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Error описывает отказ операции над продажей. Отказ не оставляет наблюдаемых изменений.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, e.Msg)
}

// PartialReleaseError возвращается, когда реестр отказал посреди выплаты.
// Адресам из Paid токены уже переведены и их записи обнулены, остальные не тронуты.
type PartialReleaseError struct {
	Paid  []common.Address
	Moved *big.Int
	Err   error
}

func (e *PartialReleaseError) Error() string {
	return fmt.Sprintf("token release interrupted after %d payee(s): %v", len(e.Paid), e.Err)
}

func (e *PartialReleaseError) Unwrap() error { return e.Err }

// IsKind сообщает, является ли err ошибкой продажи указанного вида.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// KindOf возвращает вид ошибки продажи или 0, если err к ним не относится.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func authErr(op string) error {
	return &Error{Kind: KindAuthorization, Op: op, Msg: "caller is not the owner"}
}

func validationErr(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func stateErr(op, format string, args ...any) error {
	return &Error{Kind: KindState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func capacityErr(op, format string, args ...any) error {
	return &Error{Kind: KindCapacity, Op: op, Msg: fmt.Sprintf(format, args...)}
}
