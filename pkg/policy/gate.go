// Package policy implements the pre-execution policy gate: a three-way
// allowlist/threshold/field check run against a node's materialized
// execution request before it reaches an executor (spec §4.H).
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/executor"
	"github.com/smilemakc/ais-go/pkg/numeric"
	"github.com/smilemakc/ais-go/pkg/value"
)

// Verdict is the closed three-way outcome EnforceGate can produce
// (spec §4.H).
type Verdict string

const (
	Ok              Verdict = "ok"
	NeedUserConfirm Verdict = "need_user_confirm"
	HardBlock       Verdict = "hard_block"
)

// GateInput is the extracted, policy-relevant projection of a node's
// materialized execution request (spec §4.H, extract_policy_gate_input).
type GateInput struct {
	NodeID        string
	Chain         string
	ExecutionType string
	ActionRef     string

	RiskLevel         int
	SpendAmount       numeric.Decimal
	SlippageBps       int
	UnlimitedApproval bool

	HardBlockFields []string
	MissingFields   []string
	UnknownFields   []string
}

// EnforcementOptions configures the six ordered checks EnforceGate
// runs (spec §4.H).
type EnforcementOptions struct {
	Chains          []string
	ExecutionTypes  []string
	ActionRefs      []string
	StrictAllowlist bool

	MaxRiskLevel            *int
	MaxSpendAmount          *numeric.Decimal
	MaxSlippageBps          *int
	ForbidUnlimitedApproval bool

	HardBlockOnMissing bool
}

// GateOutput is the result of running a node's GateInput through the
// configured checks.
type GateOutput struct {
	Verdict Verdict
	Reasons []string
}

func (o GateOutput) Error() string {
	if o.Verdict == Ok {
		return ""
	}
	return fmt.Sprintf("policy: %s: %s", o.Verdict, strings.Join(o.Reasons, "; "))
}

// EnforceGate runs the six ordered checks from spec §4.H; the first
// check that matches decides the verdict.
//  1. hard_block_fields non-empty -> HardBlock
//  2. chains/execution_types/action_refs allowlist (+ strict_allowlist)
//  3. max_risk_level / max_spend_amount / max_slippage_bps / forbid_unlimited_approval
//  4. missing_fields -> NeedUserConfirm, or HardBlock under hard_block_on_missing
//  5. unknown_fields -> NeedUserConfirm
//  6. otherwise Ok
func EnforceGate(in GateInput, opts EnforcementOptions) GateOutput {
	if len(in.HardBlockFields) > 0 {
		sorted := append([]string(nil), in.HardBlockFields...)
		sort.Strings(sorted)
		return GateOutput{Verdict: HardBlock, Reasons: []string{"hard_block_fields: " + strings.Join(sorted, ", ")}}
	}

	if out, matched := enforceAllowlist(in, opts); matched {
		return out
	}

	if out, matched := enforceThresholds(in, opts); matched {
		return out
	}

	if len(in.MissingFields) > 0 {
		sorted := append([]string(nil), in.MissingFields...)
		sort.Strings(sorted)
		verdict := NeedUserConfirm
		if opts.HardBlockOnMissing {
			verdict = HardBlock
		}
		return GateOutput{Verdict: verdict, Reasons: []string{"missing_fields: " + strings.Join(sorted, ", ")}}
	}

	if len(in.UnknownFields) > 0 {
		sorted := append([]string(nil), in.UnknownFields...)
		sort.Strings(sorted)
		return GateOutput{Verdict: NeedUserConfirm, Reasons: []string{"unknown_fields: " + strings.Join(sorted, ", ")}}
	}

	return GateOutput{Verdict: Ok}
}

func enforceAllowlist(in GateInput, opts EnforcementOptions) (GateOutput, bool) {
	if out, matched := checkAllowlistDimension("chain", in.Chain, opts.Chains, opts.StrictAllowlist); matched {
		return out, true
	}
	if out, matched := checkAllowlistDimension("execution_type", in.ExecutionType, opts.ExecutionTypes, opts.StrictAllowlist); matched {
		return out, true
	}
	if out, matched := checkAllowlistDimension("action_ref", in.ActionRef, opts.ActionRefs, opts.StrictAllowlist); matched {
		return out, true
	}
	return GateOutput{}, false
}

// checkAllowlistDimension enforces a single allowlist dimension: an
// empty list means the dimension is unconstrained unless
// strict_allowlist is set, in which case any non-empty field value not
// explicitly vetted is treated as unknown and deferred to a human
// rather than silently passed.
func checkAllowlistDimension(field, got string, allowed []string, strict bool) (GateOutput, bool) {
	if len(allowed) == 0 {
		if strict && got != "" {
			return GateOutput{Verdict: NeedUserConfirm, Reasons: []string{fmt.Sprintf("%s %q not allowlisted under strict_allowlist", field, got)}}, true
		}
		return GateOutput{}, false
	}
	for _, a := range allowed {
		if a == got {
			return GateOutput{}, false
		}
	}
	return GateOutput{Verdict: HardBlock, Reasons: []string{fmt.Sprintf("%s %q not in allowlist", field, got)}}, true
}

func enforceThresholds(in GateInput, opts EnforcementOptions) (GateOutput, bool) {
	if opts.MaxRiskLevel != nil && in.RiskLevel > *opts.MaxRiskLevel {
		return GateOutput{Verdict: NeedUserConfirm, Reasons: []string{fmt.Sprintf("risk_level %d exceeds max %d", in.RiskLevel, *opts.MaxRiskLevel)}}, true
	}
	if opts.MaxSpendAmount != nil && in.SpendAmount.Cmp(*opts.MaxSpendAmount) > 0 {
		return GateOutput{Verdict: HardBlock, Reasons: []string{fmt.Sprintf("spend_amount %s exceeds max %s", in.SpendAmount.String(), opts.MaxSpendAmount.String())}}, true
	}
	if opts.MaxSlippageBps != nil && in.SlippageBps > *opts.MaxSlippageBps {
		return GateOutput{Verdict: HardBlock, Reasons: []string{fmt.Sprintf("slippage_bps %d exceeds max %d", in.SlippageBps, *opts.MaxSlippageBps)}}, true
	}
	if opts.ForbidUnlimitedApproval && in.UnlimitedApproval {
		return GateOutput{Verdict: HardBlock, Reasons: []string{"unlimited_approval forbidden"}}, true
	}
	return GateOutput{}, false
}

// knownGateFields are the params ExtractGateInput recognizes by name;
// anything else present in req.Params is reported as an unknown field.
var knownGateFields = map[string]bool{
	"risk_level":         true,
	"spend_amount":       true,
	"slippage_bps":       true,
	"unlimited_approval": true,
	"hard_block_fields":  true,
}

// ExtractGateInput reads the chain, execution type, action ref, and
// risk-relevant fields out of a materialized executor.Request,
// classifying a field a swap- or approval-shaped action needs but
// doesn't carry as missing, and a field present but unrecognized as
// unknown (spec §4.H extract_policy_gate_input).
func ExtractGateInput(node documents.PlanNode, req executor.Request) GateInput {
	in := GateInput{NodeID: req.NodeID, Chain: req.Chain, ActionRef: actionRef(node)}
	if req.Execution.Kind() == value.KindMap {
		if et, ok := req.Execution.Get("executor_type"); ok && et.Kind() == value.KindString {
			in.ExecutionType = et.AsString()
		}
	}

	present := map[string]bool{}
	if v, ok := req.Params["risk_level"]; ok && v.Kind() == value.KindInt {
		in.RiskLevel = int(v.AsInt().Int64())
		present["risk_level"] = true
	}
	if v, ok := req.Params["spend_amount"]; ok {
		switch v.Kind() {
		case value.KindDecimal:
			in.SpendAmount = v.AsDecimal()
			present["spend_amount"] = true
		case value.KindInt:
			in.SpendAmount = numeric.FromAtomicInt(v.AsInt(), 0)
			present["spend_amount"] = true
		}
	}
	if v, ok := req.Params["slippage_bps"]; ok && v.Kind() == value.KindInt {
		in.SlippageBps = int(v.AsInt().Int64())
		present["slippage_bps"] = true
	}
	if v, ok := req.Params["unlimited_approval"]; ok && v.Kind() == value.KindBool {
		in.UnlimitedApproval = v.AsBool()
		present["unlimited_approval"] = true
	}
	if v, ok := req.Params["hard_block_fields"]; ok && v.Kind() == value.KindList {
		for _, item := range v.AsList() {
			if item.Kind() == value.KindString {
				in.HardBlockFields = append(in.HardBlockFields, item.AsString())
			}
		}
		present["hard_block_fields"] = true
	}

	for name := range req.Params {
		if !knownGateFields[name] {
			in.UnknownFields = append(in.UnknownFields, name)
		}
	}
	sort.Strings(in.UnknownFields)

	for _, name := range requiredFieldsFor(actionSignature(node, req)) {
		if !present[name] {
			in.MissingFields = append(in.MissingFields, name)
		}
	}
	sort.Strings(in.MissingFields)

	return in
}

func actionRef(node documents.PlanNode) string {
	if node.Source.Action != "" {
		return node.Source.Action
	}
	return node.Source.Query
}

func actionSignature(node documents.PlanNode, req executor.Request) string {
	parts := []string{actionRef(node)}
	if req.Execution.Kind() == value.KindMap {
		if m, ok := req.Execution.Get("method"); ok && m.Kind() == value.KindString {
			parts = append(parts, m.AsString())
		}
		if m, ok := req.Execution.Get("instruction"); ok && m.Kind() == value.KindString {
			parts = append(parts, m.AsString())
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// requiredFieldsFor applies the swap/approval substring heuristic: an
// action whose name/method/instruction looks like a swap requires
// spend_amount and slippage_bps; one that looks like an approval
// requires unlimited_approval.
func requiredFieldsFor(signature string) []string {
	var required []string
	if strings.Contains(signature, "swap") {
		required = append(required, "spend_amount", "slippage_bps")
	}
	if strings.Contains(signature, "approve") || strings.Contains(signature, "approval") {
		required = append(required, "unlimited_approval")
	}
	return required
}

// ProtocolAllowlistFromDocuments builds a flat list of action refs
// registered across protocols, ready to seed
// EnforcementOptions.ActionRefs from a known-good protocol set without
// hand-maintaining a duplicate list.
func ProtocolAllowlistFromDocuments(protocols map[string]documents.Protocol) []string {
	seen := map[string]bool{}
	for _, proto := range protocols {
		for name := range proto.Actions {
			seen[name] = true
		}
		for name := range proto.Queries {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
