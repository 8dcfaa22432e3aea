package types

type ExecutedProposal struct {
	ProposalID uint64 `json:"id,string"`
	TxHash     string `json:"tx"`
}

type SkippedProposal struct {
	ProposalID uint64 `json:"id,string"`
	Reason     string `json:"reason"`
}

// ScanResult reports what a single daemon scan did. It is never persisted.
type ScanResult struct {
	Executed         []ExecutedProposal `json:"executed"`
	Skipped          []SkippedProposal  `json:"skipped"`
	Timestamp        string             `json:"timestamp"`
	CheckedProposals uint64             `json:"checkedProposals,string"`
}

func NewScanResult() *ScanResult {
	return &ScanResult{
		Executed: make([]ExecutedProposal, 0),
		Skipped:  make([]SkippedProposal, 0),
	}
}

func (r *ScanResult) AddExecuted(id uint64, tx string) {
	r.Executed = append(r.Executed, ExecutedProposal{ProposalID: id, TxHash: tx})
}

func (r *ScanResult) AddSkipped(id uint64, reason string) {
	r.Skipped = append(r.Skipped, SkippedProposal{ProposalID: id, Reason: reason})
}
