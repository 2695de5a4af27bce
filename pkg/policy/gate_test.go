package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/executor"
	"github.com/smilemakc/ais-go/pkg/numeric"
	"github.com/smilemakc/ais-go/pkg/value"
)

func swapNode() documents.PlanNode {
	return documents.PlanNode{ID: "a", Source: documents.SourceRecord{Action: "swap_exact_in"}}
}

func TestExtractGateInput_ReadsChainExecutionTypeAndActionRef(t *testing.T) {
	req := executor.Request{
		NodeID: "a", Chain: "eth:1",
		Execution: value.Map(map[string]value.Value{"executor_type": value.Str("evm_call")}),
		Params:    map[string]value.Value{"risk_level": value.IntFromInt64(2)},
	}
	in := ExtractGateInput(swapNode(), req)
	assert.Equal(t, "eth:1", in.Chain)
	assert.Equal(t, "evm_call", in.ExecutionType)
	assert.Equal(t, "swap_exact_in", in.ActionRef)
	assert.Equal(t, 2, in.RiskLevel)
}

func TestExtractGateInput_FlagsSwapFieldsMissing(t *testing.T) {
	req := executor.Request{NodeID: "a", Chain: "eth:1", Execution: value.Map(nil), Params: map[string]value.Value{}}
	in := ExtractGateInput(swapNode(), req)
	assert.Contains(t, in.MissingFields, "spend_amount")
	assert.Contains(t, in.MissingFields, "slippage_bps")
}

func TestExtractGateInput_FlagsUnknownParam(t *testing.T) {
	req := executor.Request{NodeID: "a", Chain: "eth:1", Execution: value.Map(nil), Params: map[string]value.Value{"extra_field": value.Bool(true)}}
	in := ExtractGateInput(swapNode(), req)
	assert.Contains(t, in.UnknownFields, "extra_field")
}

func TestEnforceGate_HardBlockFieldsWinOverEverythingElse(t *testing.T) {
	in := GateInput{HardBlockFields: []string{"frozen_contract"}}
	out := EnforceGate(in, EnforcementOptions{})
	assert.Equal(t, HardBlock, out.Verdict)
}

func TestEnforceGate_ChainNotInAllowlistHardBlocks(t *testing.T) {
	in := GateInput{Chain: "sol:mainnet"}
	out := EnforceGate(in, EnforcementOptions{Chains: []string{"eth:1"}})
	assert.Equal(t, HardBlock, out.Verdict)
}

func TestEnforceGate_StrictAllowlistNeedsConfirmOnUnvettedDimension(t *testing.T) {
	in := GateInput{ExecutionType: "solana_call"}
	out := EnforceGate(in, EnforcementOptions{StrictAllowlist: true})
	assert.Equal(t, NeedUserConfirm, out.Verdict)
}

func TestEnforceGate_MaxSpendAmountHardBlocks(t *testing.T) {
	max := numeric.MustParse("100")
	in := GateInput{SpendAmount: numeric.MustParse("1000")}
	out := EnforceGate(in, EnforcementOptions{MaxSpendAmount: &max})
	assert.Equal(t, HardBlock, out.Verdict)
}

func TestEnforceGate_MaxRiskLevelNeedsConfirm(t *testing.T) {
	max := 3
	in := GateInput{RiskLevel: 5}
	out := EnforceGate(in, EnforcementOptions{MaxRiskLevel: &max})
	assert.Equal(t, NeedUserConfirm, out.Verdict)
}

func TestEnforceGate_ForbidUnlimitedApprovalHardBlocks(t *testing.T) {
	in := GateInput{UnlimitedApproval: true}
	out := EnforceGate(in, EnforcementOptions{ForbidUnlimitedApproval: true})
	assert.Equal(t, HardBlock, out.Verdict)
}

func TestEnforceGate_MissingFieldsNeedsConfirmByDefault(t *testing.T) {
	in := GateInput{MissingFields: []string{"slippage_bps"}}
	out := EnforceGate(in, EnforcementOptions{})
	assert.Equal(t, NeedUserConfirm, out.Verdict)
}

func TestEnforceGate_MissingFieldsHardBlockWhenConfigured(t *testing.T) {
	in := GateInput{MissingFields: []string{"slippage_bps"}}
	out := EnforceGate(in, EnforcementOptions{HardBlockOnMissing: true})
	assert.Equal(t, HardBlock, out.Verdict)
}

func TestEnforceGate_UnknownFieldsNeedsConfirm(t *testing.T) {
	in := GateInput{UnknownFields: []string{"mystery"}}
	out := EnforceGate(in, EnforcementOptions{})
	assert.Equal(t, NeedUserConfirm, out.Verdict)
}

func TestEnforceGate_OkWhenNothingTrips(t *testing.T) {
	in := GateInput{Chain: "eth:1"}
	out := EnforceGate(in, EnforcementOptions{Chains: []string{"eth:1"}})
	assert.Equal(t, Ok, out.Verdict)
	assert.Empty(t, out.Reasons)
}

func TestGateOutput_ErrorIsEmptyOnOk(t *testing.T) {
	assert.Equal(t, "", GateOutput{Verdict: Ok}.Error())
	assert.NotEqual(t, "", GateOutput{Verdict: HardBlock, Reasons: []string{"x"}}.Error())
}

func TestProtocolAllowlistFromDocuments_CollectsActionsAndQueries(t *testing.T) {
	protocols := map[string]documents.Protocol{
		"erc20@1": {
			Actions: map[string]documents.ProtocolActionOrQuery{"transfer": {Name: "transfer"}},
			Queries: map[string]documents.ProtocolActionOrQuery{"balance_of": {Name: "balance_of"}},
		},
	}
	allowed := ProtocolAllowlistFromDocuments(protocols)
	assert.Equal(t, []string{"balance_of", "transfer"}, allowed)
}
