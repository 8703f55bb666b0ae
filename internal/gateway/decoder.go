package gateway

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"mpesapool/internal/ledger"
	"mpesapool/internal/model"
)

// Direction codes carried by OpenClaim.
const (
	DirectionDraw   uint8 = 0
	DirectionReturn uint8 = 1
)

var eventKinds = map[string]model.SubmissionKind{
	"Contribute":     model.KindContribute,
	"Withdraw":       model.KindWithdraw,
	"OpenClaim":      model.KindOpenClaim,
	"AttachProof":    model.KindAttachProof,
	"Settle":         model.KindSettle,
	"Cancel":         model.KindCancel,
	"TransferShares": model.KindTransferShares,
	"ClaimRewards":   model.KindClaimRewards,
	"Touch":          model.KindTouch,
}

// Decoder turns gateway logs into pool submissions.
type Decoder struct {
	gatewayABI  abi.ABI
	topicToName map[string]string
}

// NewDecoder builds a gateway decoder.
func NewDecoder() (*Decoder, error) {
	gatewayABI, err := GatewayABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(eventKinds))
	for name := range eventKinds {
		event, ok := gatewayABI.Events[name]
		if !ok {
			return nil, fmt.Errorf("gateway abi missing event %s", name)
		}
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	return &Decoder{
		gatewayABI:  gatewayABI,
		topicToName: topicToName,
	}, nil
}

// Topic0 returns the event signatures the decoder understands.
func (d *Decoder) Topic0() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

// CanDecode checks if the topic0 is a gateway event.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a Submission.
func (d *Decoder) Decode(log model.LogRecord) (*model.Submission, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	event := d.gatewayABI.Events[name]

	addrs, err := indexedAddresses(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Kind:        eventKinds[name],
		Caller:      addrs[0].Hex(),
	}

	switch sub.Kind {
	case model.KindContribute:
		sub.Amount, err = uintString(values, 0)
	case model.KindWithdraw:
		sub.Shares, err = uintString(values, 0)
	case model.KindOpenClaim:
		if len(values) != 2 {
			return nil, fmt.Errorf("unexpected open claim values: %d", len(values))
		}
		var code uint8
		code, err = asUint8(values[0])
		if err != nil {
			return nil, err
		}
		switch code {
		case DirectionDraw:
			sub.Direction = string(ledger.DirectionDraw)
		case DirectionReturn:
			sub.Direction = string(ledger.DirectionReturn)
		default:
			return nil, fmt.Errorf("unknown direction code %d", code)
		}
		sub.Amount, err = uintString(values, 1)
	case model.KindAttachProof:
		if len(values) != 2 {
			return nil, fmt.Errorf("unexpected attach proof values: %d", len(values))
		}
		sub.ClaimID, err = asUint64(values[0])
		if err != nil {
			return nil, err
		}
		cid, ok := values[1].(string)
		if !ok {
			return nil, fmt.Errorf("unsupported cid type %T", values[1])
		}
		sub.CID = cid
	case model.KindSettle, model.KindCancel, model.KindTouch:
		if len(values) != 1 {
			return nil, fmt.Errorf("unexpected %s values: %d", name, len(values))
		}
		sub.ClaimID, err = asUint64(values[0])
	case model.KindTransferShares:
		sub.Counterparty = addrs[1].Hex()
		sub.Shares, err = uintString(values, 0)
	case model.KindClaimRewards:
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func indexedAddresses(event abi.Event, topics []string) ([]common.Address, error) {
	indexed := indexedArguments(event.Inputs)
	if len(topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(topics))
	}
	hashes, err := parseTopicHashes(topics[1:])
	if err != nil {
		return nil, err
	}

	out := make([]common.Address, 0, len(hashes))
	for i, h := range hashes {
		if indexed[i].Type.T != abi.AddressTy {
			return nil, fmt.Errorf("indexed argument %s is not an address", indexed[i].Name)
		}
		out = append(out, common.BytesToAddress(h.Bytes()))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("event %s has no caller topic", event.Name)
	}
	return out, nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	nonIndexed := event.Inputs.NonIndexed()
	if len(nonIndexed) == 0 {
		return nil, nil
	}
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := nonIndexed.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func uintString(values []interface{}, idx int) (string, error) {
	if idx >= len(values) {
		return "", fmt.Errorf("missing value %d", idx)
	}
	v, ok := values[idx].(*big.Int)
	if !ok {
		return "", fmt.Errorf("unsupported uint256 type %T", values[idx])
	}
	if v.Sign() < 0 {
		return "", fmt.Errorf("negative amount %s", v.String())
	}
	return v.String(), nil
}

func asUint64(value interface{}) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case *big.Int:
		if !v.IsUint64() {
			return 0, fmt.Errorf("uint64 overflow: %s", v.String())
		}
		return v.Uint64(), nil
	default:
		return 0, fmt.Errorf("unsupported uint64 type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v.String())
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
