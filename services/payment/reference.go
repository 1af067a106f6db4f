package payment

import (
	"github.com/speps/go-hashids/v2"
)

// ReferenceEncoder turns a transaction's reference number into the short
// alphanumeric account reference shown to the payer on M-Pesa, which allows
// at most 12 characters.
type ReferenceEncoder struct {
	hash *hashids.HashID
}

func NewReferenceEncoder(salt string) (*ReferenceEncoder, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 6
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, err
	}
	return &ReferenceEncoder{hash: h}, nil
}

func (r *ReferenceEncoder) Encode(referenceNo int64) (string, error) {
	return r.hash.EncodeInt64([]int64{referenceNo})
}
