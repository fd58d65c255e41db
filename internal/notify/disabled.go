package notify

import (
	"context"
	"fmt"
)

type DisabledNotifier struct {
	reason string
}

func NewDisabledNotifier(reason string) *DisabledNotifier {
	return &DisabledNotifier{reason: reason}
}

func (n *DisabledNotifier) Send(_ context.Context, _ Message) (Receipt, error) {
	if n.reason == "" {
		return Receipt{}, ErrDisabled
	}
	return Receipt{}, fmt.Errorf("%w: %s", ErrDisabled, n.reason)
}
