package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

const (
	SubjectOrderPlaced  = "Order Placed Successfully"
	SubjectOrderUpdated = "Order Status Updated"
)

var (
	orderPlacedTmpl = template.Must(template.New("order_placed").Parse(
		`<h2>Order Placed ✅</h2><p>Your order <b>{{.OrderID}}</b> was placed successfully.</p><p>Total: ${{.Total}}</p>`))
	orderStatusTmpl = template.Must(template.New("order_status").Parse(
		`<h2>Order Update 📦</h2><p>Your order <b>{{.OrderID}}</b> is now <b>{{.Status}}</b>.</p>`))
)

// OrderPlaced renders the confirmation mail body. total is expected to be
// already formatted with two decimals.
func OrderPlaced(orderID, total string) (string, error) {
	return render(orderPlacedTmpl, map[string]string{"OrderID": orderID, "Total": total})
}

func OrderStatus(orderID, status string) (string, error) {
	return render(orderStatusTmpl, map[string]string{"OrderID": orderID, "Status": status})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: failed to render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
