package solve

import (
	"errors"
	"fmt"
)

// IllConditionedDesignError reports a design matrix too close to singular
// for a stable least-squares solution: its condition number exceeds the
// configured limit, or it lost full column rank after row exclusion.
type IllConditionedDesignError struct {
	ConditionNumber float64
	Limit           float64
	Detail          string
}

func (e *IllConditionedDesignError) Error() string {
	msg := fmt.Sprintf("ill-conditioned design: condition number %.4g exceeds limit %.4g",
		e.ConditionNumber, e.Limit)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsIllConditionedDesignError checks if an error is an IllConditionedDesignError
func IsIllConditionedDesignError(err error) bool {
	var e *IllConditionedDesignError
	return errors.As(err, &e)
}
