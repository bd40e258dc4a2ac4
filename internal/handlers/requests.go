package handlers

import (
	"strings"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

type itemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type paymentMethodRequest struct {
	Type                     string `json:"type"`
	Token                    string `json:"token"`
	Installments             int    `json:"installments"`
	PhoneNumber              string `json:"phone_number"`
	UserType                 string `json:"user_type"`
	UserLegalID              string `json:"user_legal_id"`
	UserLegalIDType          string `json:"user_legal_id_type"`
	FinancialInstitutionCode string `json:"financial_institution_code"`
	PaymentDescription       string `json:"payment_description"`
}

func (p paymentMethodRequest) toInput() services.PaymentMethodInput {
	return services.PaymentMethodInput{
		Type:               strings.ToUpper(strings.TrimSpace(p.Type)),
		Token:              strings.TrimSpace(p.Token),
		Installments:       p.Installments,
		PhoneNumber:        strings.TrimSpace(p.PhoneNumber),
		UserType:           p.UserType,
		UserLegalID:        p.UserLegalID,
		UserLegalIDType:    p.UserLegalIDType,
		FinancialInstCode:  p.FinancialInstitutionCode,
		PaymentDescription: p.PaymentDescription,
	}
}

func toItemInputs(items []itemRequest) []services.OrderItemInput {
	out := make([]services.OrderItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, services.OrderItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

type createOrderRequest struct {
	Customer struct {
		Email    string `json:"email"`
		FullName string `json:"full_name"`
		Phone    string `json:"phone"`
	} `json:"customer"`
	Delivery struct {
		Address    string `json:"address"`
		City       string `json:"city"`
		Region     string `json:"region"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	} `json:"delivery"`
	Items         []itemRequest         `json:"items"`
	AmountInCents int64                 `json:"amount_in_cents"`
	Currency      string                `json:"currency"`
	PaymentMethod *paymentMethodRequest `json:"payment_method"`
	Provider      string                `json:"provider"`
	RedirectURL   string                `json:"redirect_url"`
}

func (r createOrderRequest) toCommand() services.CheckoutCommand {
	cmd := services.CheckoutCommand{
		Order: services.CreateOrderCommand{
			Customer: services.CustomerInput{
				Email:    r.Customer.Email,
				FullName: r.Customer.FullName,
				Phone:    r.Customer.Phone,
			},
			Delivery: services.DeliveryInput{
				Address:    r.Delivery.Address,
				City:       r.Delivery.City,
				Region:     r.Delivery.Region,
				PostalCode: r.Delivery.PostalCode,
				Country:    r.Delivery.Country,
			},
			Items:              toItemInputs(r.Items),
			ClaimedAmountCents: r.AmountInCents,
			Currency:           r.Currency,
		},
		Provider:    strings.TrimSpace(r.Provider),
		RedirectURL: strings.TrimSpace(r.RedirectURL),
	}
	if r.PaymentMethod != nil {
		method := r.PaymentMethod.toInput()
		cmd.Order.PaymentMethod = &method
	}
	return cmd
}
