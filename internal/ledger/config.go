package ledger

import "fmt"

// ZeroAmountPolicy decides what a deposit or withdrawal of 0 lamports does.
type ZeroAmountPolicy string

const (
	// ZeroAmountAllow lets 0 through every check; the move is empty but the
	// event is still emitted.
	ZeroAmountAllow ZeroAmountPolicy = "allow"
	// ZeroAmountReject fails with ErrZeroAmount once the lock check passed.
	ZeroAmountReject ZeroAmountPolicy = "reject"
)

func ParseZeroAmountPolicy(s string) (ZeroAmountPolicy, error) {
	switch p := ZeroAmountPolicy(s); p {
	case "":
		return ZeroAmountAllow, nil
	case ZeroAmountAllow, ZeroAmountReject:
		return p, nil
	}
	return "", fmt.Errorf("unknown zero amount policy %q", s)
}

type Config struct {
	ZeroAmount ZeroAmountPolicy
}

func DefaultConfig() Config {
	return Config{ZeroAmount: ZeroAmountAllow}
}
