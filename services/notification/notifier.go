package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/sirupsen/logrus"
)

// ReconciliationAlert describes a payment that was collected on M-Pesa but
// not released on Lightning. It carries both rail references.
type ReconciliationAlert struct {
	TransactionID     string `json:"transaction_id"`
	UserID            int64  `json:"user_id"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	AmountSats        int64  `json:"amount_sats"`
	CheckoutRequestID string `json:"checkout_request_id"`
	ReceiptNumber     string `json:"mpesa_receipt_number"`
	PaymentHash       string `json:"payment_hash"`
	Reason            string `json:"reason"`

	// Preimage is set when the invoice was paid and only the ledger is behind.
	Preimage string `json:"lightning_preimage,omitempty"`
}

type Receipt struct {
	PhoneNumber   string
	Amount        string
	Currency      string
	AmountSats    int64
	Payee         string
	ReceiptNumber string
	Reference     string
}

type Notifier interface {
	NotifyReconciliation(ctx context.Context, alert ReconciliationAlert) error
	SendReceipt(ctx context.Context, receipt Receipt) error
}

type SNSNotifier struct {
	client   snsiface.SNSAPI
	topicARN string
	logger   *logging.Logger
}

func NewSNSNotifier(c *utils.Config, logger *logging.Logger) (*SNSNotifier, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(c.AWSRegion),
		Credentials: credentials.NewStaticCredentials(c.AWSAccessKeyID, c.AWSSecretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create aws session: %w", err)
	}
	return NewSNSNotifierWithClient(sns.New(sess), c.ReconciliationTopicARN, logger), nil
}

func NewSNSNotifierWithClient(client snsiface.SNSAPI, topicARN string, logger *logging.Logger) *SNSNotifier {
	return &SNSNotifier{
		client:   client,
		topicARN: topicARN,
		logger:   logger,
	}
}

// NotifyReconciliation publishes the alert to the operations topic. The
// structured alert travels as a message attribute next to the readable text.
func (s *SNSNotifier) NotifyReconciliation(ctx context.Context, alert ReconciliationAlert) error {
	if s.topicARN == "" {
		return fmt.Errorf("no reconciliation topic configured")
	}

	message, err := render("reconciliation", alert)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	out, err := s.client.PublishWithContext(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String("Settlement reconciliation required"),
		Message:  aws.String(message),
		MessageAttributes: map[string]*sns.MessageAttributeValue{
			"alert": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(payload)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish reconciliation alert: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": alert.TransactionID,
		"message_id":     aws.StringValue(out.MessageId),
	}).Info("reconciliation alert published")
	return nil
}

func (s *SNSNotifier) SendReceipt(ctx context.Context, receipt Receipt) error {
	message, err := render("receipt", receipt)
	if err != nil {
		return err
	}

	_, err = s.client.PublishWithContext(ctx, &sns.PublishInput{
		Message:     aws.String(message),
		PhoneNumber: aws.String("+" + receipt.PhoneNumber),
	})
	if err != nil {
		return fmt.Errorf("send sms receipt: %w", err)
	}
	return nil
}

// LogNotifier writes notifications to the log. It stands in for SNS when no
// AWS credentials are configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) NotifyReconciliation(_ context.Context, alert ReconciliationAlert) error {
	message, err := render("reconciliation", alert)
	if err != nil {
		return err
	}
	l.logger.WithFields(logrus.Fields{
		"transaction_id":          alert.TransactionID,
		"reconciliation_required": true,
	}).Error(message)
	return nil
}

func (l *LogNotifier) SendReceipt(_ context.Context, receipt Receipt) error {
	message, err := render("receipt", receipt)
	if err != nil {
		return err
	}
	l.logger.WithField("reference", receipt.Reference).Info(message)
	return nil
}
