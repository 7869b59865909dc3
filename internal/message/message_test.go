package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibs-source/pricefeed-consumer/internal/engine"
	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/pkg/jsonfast"
)

var processedAt = time.Date(2024, 10, 9, 13, 8, 33, 0, time.UTC)

func TestTransactionWireForm(t *testing.T) {
	program := ledger.ProgramIDFromName("pricefeed-consumer")
	tx := &ledger.Transaction{
		ID: "tx-1",
		Instructions: []ledger.Instruction{
			{Program: ledger.Ed25519VerifierID, Data: []byte{0x01, 0x00}},
			{Program: program, Data: engine.EncodeCreate(2)},
		},
	}

	body, err := EncodeTransaction(tx)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Equal(t, "tx-1", wire["id"])
	ixs := wire["instructions"].([]interface{})
	require.Len(t, ixs, 2)
	assert.Equal(t, "0100", ixs[0].(map[string]interface{})["data"])
	assert.Equal(t, program.String(), ixs[1].(map[string]interface{})["program"])

	back, err := ParseTransaction(body)
	require.NoError(t, err)
	assert.Equal(t, tx, back)
}

func TestParseTransaction_Rejects(t *testing.T) {
	good := ledger.ProgramIDFromName("p").String()
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing id", `{"instructions":[]}`},
		{"bad program", `{"id":"a","instructions":[{"program":"zz","data":""}]}`},
		{"short program", `{"id":"a","instructions":[{"program":"abcd","data":""}]}`},
		{"bad data", fmt.Sprintf(`{"id":"a","instructions":[{"program":%q,"data":"xyz"}]}`, good)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTransaction([]byte(tt.body))
			assert.Error(t, err)
		})
	}

	_, err := ParseTransaction([]byte(`{"instructions":[]}`))
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestNewResult_Rejection(t *testing.T) {
	program := ledger.ProgramIDFromName("btc-usd")
	cause := &ledger.ExecError{
		Index:   1,
		Program: program,
		Err:     fmt.Errorf("check: %w", engine.ErrInvalidPayloadTimestamp),
	}

	r := NewResult("tx-9", nil, cause, -8, processedAt)
	assert.False(t, r.OK)
	assert.Equal(t, engine.CodeInvalidPayloadTimestamp, r.Code)
	assert.Equal(t, 1, r.Instruction)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(r.AppendJSON(jsonfast.New(0)), &got))
	assert.Equal(t, "tx-9", got["id"])
	assert.Equal(t, false, got["ok"])
	assert.Equal(t, float64(6005), got["code"])
	assert.Equal(t, "InvalidPayloadTimestamp", got["code_name"])
	assert.Equal(t, float64(1), got["instruction"])
	assert.Equal(t, program.String(), got["program"])
	assert.Equal(t, "2024-10-09T13:08:33Z", got["processed_at"])
}

func TestNewResult_RuntimeError(t *testing.T) {
	r := NewResult("tx-2", nil, ledger.ErrEmptyTransaction, -8, processedAt)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(r.AppendJSON(jsonfast.New(0)), &got))
	assert.Equal(t, float64(0), got["code"])
	assert.Equal(t, float64(-1), got["instruction"])
	assert.NotContains(t, got, "code_name")
	assert.NotContains(t, got, "program")
	assert.Equal(t, ledger.ErrEmptyTransaction.Error(), got["error"])
}

func TestNewResult_Update(t *testing.T) {
	receipt := &ledger.Receipt{
		ID: "tx-3",
		Events: []ledger.Event{{Index: 1, Data: engine.Outcome{
			Tag:         engine.TagUpdate,
			FeedID:      2,
			TimestampUs: 1728479312975644,
			Price:       100000000,
		}}},
	}

	r := NewResult("tx-3", receipt, nil, -8, processedAt)
	require.True(t, r.OK)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(r.AppendJSON(jsonfast.New(0)), &got))
	assert.Equal(t, "update", got["action"])
	assert.Equal(t, float64(2), got["feed_id"])
	assert.Equal(t, float64(1728479312975644), got["timestamp_us"])
	assert.Equal(t, float64(100000000), got["price"])
	assert.Equal(t, "1", got["price_decimal"])
	assert.NotContains(t, got, "error")
}

func TestNewResult_Create(t *testing.T) {
	receipt := &ledger.Receipt{Events: []ledger.Event{{Data: engine.Outcome{Tag: engine.TagCreate, FeedID: 7}}}}

	var got map[string]interface{}
	b := jsonfast.New(0)
	require.NoError(t, json.Unmarshal(NewResult("tx-4", receipt, nil, -8, processedAt).AppendJSON(b), &got))
	assert.Equal(t, "create", got["action"])
	assert.Equal(t, float64(7), got["feed_id"])
	assert.NotContains(t, got, "timestamp_us")
}

func TestNewResult_NonEngineError(t *testing.T) {
	err := &ledger.ExecError{Index: 0, Err: errors.New("signature verification failed")}
	r := NewResult("tx-5", nil, err, -8, processedAt)
	assert.Equal(t, engine.Code(0), r.Code)
	assert.Equal(t, 0, r.Instruction)
}
