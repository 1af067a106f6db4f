package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	snsiface.SNSAPI
	published []*sns.PublishInput
	err       error
}

func (f *fakeSNS) PublishWithContext(_ aws.Context, in *sns.PublishInput, _ ...request.Option) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, in)
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

var alert = ReconciliationAlert{
	TransactionID:     "3f8a",
	UserID:            7,
	Amount:            "1000",
	Currency:          "KES",
	AmountSats:        10000,
	CheckoutRequestID: "ws_123",
	ReceiptNumber:     "NLJ7RT61SV",
	PaymentHash:       "deadbeef",
	Reason:            "no route",
}

func TestNotifyReconciliationPublishesToTopic(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifierWithClient(client, "arn:aws:sns:eu-west-1:123:recon", logging.NewNopLogger())

	require.NoError(t, n.NotifyReconciliation(context.Background(), alert))
	require.Len(t, client.published, 1)

	in := client.published[0]
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:recon", aws.StringValue(in.TopicArn))
	assert.Contains(t, aws.StringValue(in.Message), "ws_123")
	assert.Contains(t, aws.StringValue(in.Message), "deadbeef")
	assert.Contains(t, aws.StringValue(in.Message), "no route")

	var decoded ReconciliationAlert
	require.NoError(t, json.Unmarshal([]byte(aws.StringValue(in.MessageAttributes["alert"].StringValue)), &decoded))
	assert.Equal(t, alert, decoded)
}

func TestReconciliationMessageForUncreditedPayment(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifierWithClient(client, "arn:topic", logging.NewNopLogger())

	paid := alert
	paid.Preimage = "c0ffee"
	paid.Reason = "ledger update failed"
	require.NoError(t, n.NotifyReconciliation(context.Background(), paid))
	require.Len(t, client.published, 1)

	message := aws.StringValue(client.published[0].Message)
	assert.Contains(t, message, "preimage c0ffee")
	assert.Contains(t, message, "wallet was not credited")
	assert.NotContains(t, message, "settlement of 10000 sats (hash deadbeef) failed")
}

func TestNotifyReconciliationRequiresTopic(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifierWithClient(client, "", logging.NewNopLogger())

	require.Error(t, n.NotifyReconciliation(context.Background(), alert))
	assert.Empty(t, client.published)
}

func TestSendReceipt(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifierWithClient(client, "", logging.NewNopLogger())

	err := n.SendReceipt(context.Background(), Receipt{
		PhoneNumber:   "254712345678",
		Amount:        "1000",
		Currency:      "KES",
		AmountSats:    10000,
		Payee:         "Shop",
		ReceiptNumber: "NLJ7RT61SV",
		Reference:     "AbC123",
	})
	require.NoError(t, err)
	require.Len(t, client.published, 1)
	assert.Equal(t, "+254712345678", aws.StringValue(client.published[0].PhoneNumber))
	assert.Equal(t,
		"Payment of KES 1000 to Shop confirmed. M-Pesa ref NLJ7RT61SV, 10000 sats settled. Ref AbC123.",
		aws.StringValue(client.published[0].Message))
}

func TestPublishErrorsAreReturned(t *testing.T) {
	client := &fakeSNS{err: errors.New("throttled")}
	n := NewSNSNotifierWithClient(client, "arn:topic", logging.NewNopLogger())

	require.Error(t, n.NotifyReconciliation(context.Background(), alert))
	require.Error(t, n.SendReceipt(context.Background(), Receipt{PhoneNumber: "254712345678"}))
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logging.NewNopLogger())
	require.NoError(t, n.NotifyReconciliation(context.Background(), alert))
	require.NoError(t, n.SendReceipt(context.Background(), Receipt{}))
}
