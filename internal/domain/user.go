package domain

import "time"

// Role tags an account as a rider or a driver.
type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleRider || r == RoleDriver
}

// DriverProfile is the driver-specific part of an account.
type DriverProfile struct {
	LicensePlate string
	Verified     bool
}

// RiderProfile is the rider-specific part of an account.
type RiderProfile struct {
	RideCount        int
	PaymentCustomer  string // gateway customer reference
	PaymentMethodRef string // default payment instrument reference
}

// HasPaymentMethod reports whether the rider can be charged.
func (p *RiderProfile) HasPaymentMethod() bool {
	return p != nil && p.PaymentCustomer != "" && p.PaymentMethodRef != ""
}

// Account is a user of the platform. Exactly one of Driver and Rider is set,
// matching Role.
type Account struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	Driver    *DriverProfile
	Rider     *RiderProfile
	CreatedAt time.Time
}

// CanAcceptRides reports whether the account may take ride offers.
func (a *Account) CanAcceptRides() bool {
	switch a.Role {
	case RoleDriver:
		return a.Driver != nil && a.Driver.Verified
	default:
		return false
	}
}

// PaymentInstrument returns the rider's customer and method references.
func (a *Account) PaymentInstrument() (customer, method string, ok bool) {
	switch a.Role {
	case RoleRider:
		if a.Rider.HasPaymentMethod() {
			return a.Rider.PaymentCustomer, a.Rider.PaymentMethodRef, true
		}
	}
	return "", "", false
}
