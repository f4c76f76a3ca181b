package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"nft-rental-escrow/internal/security"
)

// Sign encodes params and attaches an attestation from each signer.
func Sign(instruction Instruction, params any, ttl time.Duration, signers ...*security.Signer) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("encode params: %w", err)
	}
	req := Request{Instruction: instruction, Params: raw}
	digest := Digest(instruction, raw)
	for _, s := range signers {
		token, err := s.Attest(digest, ttl)
		if err != nil {
			return Request{}, fmt.Errorf("attest as %s: %w", s.Address(), err)
		}
		req.Signatures = append(req.Signatures, token)
	}
	return req, nil
}
