package services

import "errors"

var (
	// ErrCouponInvalidCode indicates an empty or malformed coupon code.
	ErrCouponInvalidCode = errors.New("coupon code is required")
	// ErrCouponNotFound indicates no coupon matches the code.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponExpired indicates the coupon passed its expiry at validation time.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponValueInvalid indicates the stored coupon cannot be interpreted.
	ErrCouponValueInvalid = errors.New("coupon value invalid")
	// ErrCouponMinPurchase indicates the subtotal is below the coupon minimum.
	ErrCouponMinPurchase = errors.New("subtotal below coupon minimum purchase")

	// ErrEmptyCart indicates a checkout attempt without any cart line.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCustomerRequired indicates a checkout without an authenticated customer.
	ErrCustomerRequired = errors.New("customer id is required")
	// ErrShippingAddressRequired indicates home delivery without an address.
	ErrShippingAddressRequired = errors.New("shipping address is required for home delivery")
	// ErrOrderNumberExhausted indicates repeated order number collisions.
	ErrOrderNumberExhausted = errors.New("could not allocate a unique order number")

	// ErrCarrierTrackingRequired indicates a shipping transition without
	// carrier or tracking number.
	ErrCarrierTrackingRequired = errors.New("carrier and tracking number are required for shipping")
	// ErrCancellationReasonRequired indicates a cancellation without a reason.
	ErrCancellationReasonRequired = errors.New("cancellation reason is required")
	// ErrCancelViaTransition indicates an attempt to reach annulée through the
	// plain transition path instead of the compensator.
	ErrCancelViaTransition = errors.New("cancellation must go through the cancel operation")
	// ErrRefundRequired indicates the external refund failed, so no
	// compensating write was applied.
	ErrRefundRequired = errors.New("refund failed, order left unchanged")
)
