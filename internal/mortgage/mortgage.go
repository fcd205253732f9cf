// Package mortgage converts between purchase prices and monthly
// payments with a standard amortizing-loan formula.
//
// The two directions are deliberately not inverses of each other:
// MonthlyPayment estimates tax as a share of price plus a fixed
// insurance premium, while MaxPrice reserves one flat amount for both.
// Round-tripping a value through them will not reproduce the input.
package mortgage

import "math"

const (
	// DefaultInterestRate is the annual rate in percent.
	DefaultInterestRate = 6.5
	// DefaultTermYears is the loan term.
	DefaultTermYears = 30

	// propertyTaxRate is the annual property tax share of price.
	propertyTaxRate = 0.011
	// annualInsurance is the flat yearly insurance estimate.
	annualInsurance = 1200.0
	// flatMonthlyTaxAndInsurance is reserved off the budget when
	// inverting the formula.
	flatMonthlyTaxAndInsurance = 500.0
)

// Terms are the loan parameters shared by both directions.
type Terms struct {
	InterestRate float64
	TermYears    int
}

// DefaultTerms is a 30-year loan at 6.5%.
var DefaultTerms = Terms{InterestRate: DefaultInterestRate, TermYears: DefaultTermYears}

// MonthlyPayment estimates the full monthly cost of buying at price
// with the given down payment percent: principal and interest on the
// financed amount, plus property tax and insurance estimates.
func MonthlyPayment(price, downPaymentPercent float64, terms Terms) float64 {
	if price <= 0 {
		return 0
	}
	principal := price * (1 - downPaymentPercent/100)
	pi := amortizedPayment(principal, terms)
	tax := price * propertyTaxRate / 12
	insurance := annualInsurance / 12
	return pi + tax + insurance
}

// MaxPrice inverts the affordability question: the highest purchase
// price whose payment fits in maxMonthlyPayment. A flat amount is
// reserved for tax and insurance first; a budget at or below it
// affords nothing.
func MaxPrice(maxMonthlyPayment, downPaymentPercent float64, terms Terms) float64 {
	piBudget := maxMonthlyPayment - flatMonthlyTaxAndInsurance
	if piBudget <= 0 {
		return 0
	}

	loan := loanAmount(piBudget, terms)
	financedFraction := 1 - downPaymentPercent/100
	if financedFraction <= 0 {
		return 0
	}
	return loan / financedFraction
}

// amortizedPayment is the standard P&I formula.
func amortizedPayment(principal float64, terms Terms) float64 {
	if principal <= 0 {
		return 0
	}
	months := float64(terms.TermYears * 12)
	monthlyRate := terms.InterestRate / 100 / 12
	if monthlyRate == 0 {
		return principal / months
	}
	factor := math.Pow(1+monthlyRate, months)
	return principal * monthlyRate * factor / (factor - 1)
}

// loanAmount inverts amortizedPayment.
func loanAmount(payment float64, terms Terms) float64 {
	months := float64(terms.TermYears * 12)
	monthlyRate := terms.InterestRate / 100 / 12
	if monthlyRate == 0 {
		return payment * months
	}
	factor := math.Pow(1+monthlyRate, months)
	return payment * (factor - 1) / (monthlyRate * factor)
}
