package payment

import (
	"github.com/razorpay/razorpay-go"
)

// razorpayClient adapts the razorpay-go SDK to the razorpayAPI surface.
type razorpayClient struct {
	client *razorpay.Client
}

func newRazorpayClient(keyID, keySecret string) *razorpayClient {
	return &razorpayClient{client: razorpay.NewClient(keyID, keySecret)}
}

func (c *razorpayClient) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	return c.client.Order.Create(data, nil)
}

func (c *razorpayClient) FindOrderByReceipt(receipt string) (map[string]interface{}, error) {
	resp, err := c.client.Order.All(map[string]interface{}{"receipt": receipt, "count": 1}, nil)
	if err != nil {
		return nil, err
	}
	for _, item := range itemsOf(resp) {
		return item, nil
	}
	return nil, nil
}

func (c *razorpayClient) OrderPayments(orderID string) ([]map[string]interface{}, error) {
	resp, err := c.client.Order.Payments(orderID, nil, nil)
	if err != nil {
		return nil, err
	}
	return itemsOf(resp), nil
}

func (c *razorpayClient) CapturePayment(paymentID string, amount int) (map[string]interface{}, error) {
	return c.client.Payment.Capture(paymentID, amount, nil, nil)
}

func (c *razorpayClient) RefundPayment(paymentID string, amount int, data map[string]interface{}) (map[string]interface{}, error) {
	return c.client.Payment.Refund(paymentID, amount, data, nil)
}

func itemsOf(resp map[string]interface{}) []map[string]interface{} {
	raw, ok := resp["items"].([]interface{})
	if !ok {
		return nil
	}
	items := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items
}
