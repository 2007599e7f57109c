package model

type AccountStatus string

const (
	AccountStatusFree   AccountStatus = "free"
	AccountStatusRented AccountStatus = "rented"
)

type OrderRefKind string

const (
	// OrderRefExternal correlates a lease to a real marketplace order. Only
	// external refs are used for buyer-facing order notifications.
	OrderRefExternal OrderRefKind = "external"
	// OrderRefSynthetic marks internally issued leases (operator-granted or
	// test rentals) with no marketplace transaction behind them.
	OrderRefSynthetic OrderRefKind = "synthetic"
)
