package tx

import (
	"cloud.google.com/go/spanner/apiv1/spannerpb"
)

func singleUseSelector(opts *spannerpb.TransactionOptions) *spannerpb.TransactionSelector {
	return &spannerpb.TransactionSelector{
		Selector: &spannerpb.TransactionSelector_SingleUse{SingleUse: opts},
	}
}

func beginSelector(opts *spannerpb.TransactionOptions) *spannerpb.TransactionSelector {
	return &spannerpb.TransactionSelector{
		Selector: &spannerpb.TransactionSelector_Begin{Begin: opts},
	}
}

func idSelector(id ID) *spannerpb.TransactionSelector {
	return &spannerpb.TransactionSelector{
		Selector: &spannerpb.TransactionSelector_Id{Id: id},
	}
}

func isBegin(selector *spannerpb.TransactionSelector) bool {
	return selector.GetBegin() != nil
}
