package proofs

import (
	"fmt"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module/signature"
)

// Verify checks a proof of store against the committee: every signer must
// be a member, the signers' cumulative stake must meet the quorum
// threshold, and the aggregated signature must verify under the signers'
// aggregated staking key.
func Verify(proof *model.ProofOfStore, committee Committee) (bool, error) {

	var stake uint64
	indices := make([]int, 0, len(proof.Signers))
	seen := make(map[model.Identifier]struct{}, len(proof.Signers))
	for _, signer := range proof.Signers {
		if _, dup := seen[signer]; dup {
			return false, nil
		}
		seen[signer] = struct{}{}
		identity, ok := committee.Identity(signer)
		if !ok {
			return false, nil
		}
		index, _ := committee.SignerIndex(signer)
		indices = append(indices, index)
		stake += identity.Stake
	}
	if stake < committee.QuorumThreshold() {
		return false, nil
	}

	aggregator, err := signature.NewSignatureAggregatorSameMessage(
		proof.Info.SignableBytes(),
		signature.BatchAckTag,
		committee.Identities().StakingKeys(),
	)
	if err != nil {
		return false, fmt.Errorf("could not create signature aggregator: %w", err)
	}
	return aggregator.VerifyAggregate(indices, proof.AggregatedSignature)
}
