package checkout

import (
	"regexp"
	"strings"

	"dropwatch/internal/page"
)

// Field is a semantic checkout field.
type Field string

const (
	Name       Field = "name"
	FirstName  Field = "first_name"
	LastName   Field = "last_name"
	Email      Field = "email"
	Phone      Field = "phone"
	Address1   Field = "address1"
	Address2   Field = "address2"
	City       Field = "city"
	State      Field = "state"
	Zip        Field = "zip"
	Country    Field = "country"
	CardNumber Field = "card_number"
	CardExpiry Field = "card_expiry"
	CardCVV    Field = "card_cvv"
	CardName   Field = "card_name"

	// derived from CardExpiry for split month/year controls
	cardExpMonth Field = "card_exp_month"
	cardExpYear  Field = "card_exp_year"
)

// FieldMap holds the buyer data. It is read-only once built.
type FieldMap map[Field]string

var aliases = map[string]Field{
	"name": Name, "fullname": Name, "full_name": Name,
	"first_name": FirstName, "firstname": FirstName, "first": FirstName, "given_name": FirstName,
	"last_name": LastName, "lastname": LastName, "last": LastName, "surname": LastName, "family_name": LastName,
	"email": Email, "e_mail": Email, "mail": Email,
	"phone": Phone, "tel": Phone, "telephone": Phone, "mobile": Phone,
	"address": Address1, "address1": Address1, "address_1": Address1, "address_line1": Address1, "address_line_1": Address1, "street": Address1,
	"address2": Address2, "address_2": Address2, "address_line2": Address2, "address_line_2": Address2, "apt": Address2, "suite": Address2,
	"city": City, "town": City,
	"state": State, "region": State, "province": State, "county": State,
	"zip": Zip, "postal": Zip, "postcode": Zip, "postal_code": Zip, "zipcode": Zip, "zip_code": Zip,
	"country": Country,
	"number": CardNumber, "cardnumber": CardNumber, "card_number": CardNumber, "cc_number": CardNumber, "ccnumber": CardNumber,
	"expiry": CardExpiry, "exp": CardExpiry, "expiry_date": CardExpiry, "expiration": CardExpiry, "card_expiry": CardExpiry, "exp_date": CardExpiry,
	"cvv": CardCVV, "cvc": CardCVV, "csc": CardCVV, "security_code": CardCVV, "card_cvv": CardCVV,
	"cardholder": CardName, "card_name": CardName, "name_on_card": CardName, "cardholder_name": CardName,
}

var keySeparators = regexp.MustCompile(`[\s\-]+`)

// NewFieldMap resolves raw buyer-file keys to fields. Unknown keys are
// ignored; first and last name are derived from a full name when absent.
func NewFieldMap(raw map[string]string) FieldMap {
	fm := make(FieldMap)
	for k, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := keySeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(k)), "_")
		if f, ok := aliases[key]; ok {
			fm[f] = v
		}
	}

	if full, ok := fm[Name]; ok {
		first, last, _ := strings.Cut(full, " ")
		if _, ok := fm[FirstName]; !ok {
			fm[FirstName] = first
		}
		if _, ok := fm[LastName]; !ok && last != "" {
			fm[LastName] = strings.TrimSpace(last)
		}
	} else if fm[FirstName] != "" {
		fm[Name] = strings.TrimSpace(fm[FirstName] + " " + fm[LastName])
	}
	if _, ok := fm[CardName]; !ok && fm[Name] != "" {
		fm[CardName] = fm[Name]
	}
	if exp, ok := fm[CardExpiry]; ok {
		fm[CardExpiry] = NormalizeExpiry(exp)
		if m, y, ok := strings.Cut(fm[CardExpiry], "/"); ok {
			fm[cardExpMonth] = m
			fm[cardExpYear] = y
		}
	}
	return fm
}

// HasCard reports whether any card data is present.
func (fm FieldMap) HasCard() bool {
	return fm[CardNumber] != "" || fm[CardExpiry] != "" || fm[CardCVV] != ""
}

var (
	expirySeparated = regexp.MustCompile(`^(\d{1,2})\s*[/\-. ]\s*(\d{2}|\d{4})$`)
	expiryCompact   = regexp.MustCompile(`^(\d{2})(\d{2}|\d{4})$`)
)

// NormalizeExpiry rewrites a card expiry as MM/YY. It accepts MMYY,
// MMYYYY and month/year separated by a slash, dash, dot or space. Anything
// else is returned trimmed.
func NormalizeExpiry(s string) string {
	s = strings.TrimSpace(s)
	m := expirySeparated.FindStringSubmatch(s)
	if m == nil {
		m = expiryCompact.FindStringSubmatch(s)
	}
	if m == nil {
		return s
	}
	month, year := m[1], m[2]
	if len(month) == 1 {
		month = "0" + month
	}
	return month + "/" + year[len(year)-2:]
}

type rule struct {
	field    Field
	keywords []string
	res      []*regexp.Regexp
}

// compile builds a left-bounded matcher per keyword.
func compile(rules []rule) []rule {
	for i := range rules {
		for _, kw := range rules[i].keywords {
			rules[i].res = append(rules[i].res, regexp.MustCompile(`(^|[^a-z0-9])`+regexp.QuoteMeta(kw)))
		}
	}
	return rules
}

func (r rule) match(ident string) bool {
	for _, re := range r.res {
		if re.MatchString(ident) {
			return true
		}
	}
	return false
}

// cardRules are checked before contactRules; order matters within each.
var cardRules = compile([]rule{
	{CardNumber, []string{"cc number", "ccnumber", "card number", "cardnumber", "card no", "credit card"}, nil},
	{cardExpMonth, []string{"exp month", "expmonth", "expiry month", "expiration month", "cc exp month"}, nil},
	{cardExpYear, []string{"exp year", "expyear", "expiry year", "expiration year", "cc exp year"}, nil},
	{CardExpiry, []string{"cc exp", "expir", "exp date", "expdate", "mm/yy", "mm / yy", "mmyy"}, nil},
	{CardCVV, []string{"cvv", "cvc", "csc", "security code", "securitycode", "cc csc", "card code"}, nil},
	{CardName, []string{"cardholder", "card holder", "name on card", "nameoncard", "cc name"}, nil},
})

var contactRules = compile([]rule{
	{Email, []string{"email", "e mail"}, nil},
	{Phone, []string{"phone", "tel", "mobile"}, nil},
	{FirstName, []string{"first name", "firstname", "given name", "fname"}, nil},
	{LastName, []string{"last name", "lastname", "surname", "family name", "lname"}, nil},
	{City, []string{"city", "town", "locality", "address level2"}, nil},
	{State, []string{"state", "region", "province", "county", "address level1"}, nil},
	{Zip, []string{"zip", "postal", "postcode", "post code"}, nil},
	{Country, []string{"country"}, nil},
	{Address2, []string{"address2", "address 2", "address line 2", "line2", "apartment", "apt", "suite"}, nil},
	{Address1, []string{"address1", "address 1", "address line 1", "line1", "street", "address"}, nil},
	{Name, []string{"full name", "fullname", "name"}, nil},
})

var (
	genericName   = regexp.MustCompile(`(^|[^a-z0-9])name`)
	genericNumber = regexp.MustCompile(`(^|[^a-z0-9])number`)
)

// skipIdent marks inputs that are never buyer data.
var skipIdent = regexp.MustCompile(`\b(coupon|promo|discount|gift|voucher|search|company|newsletter|username|password)\b`)

// classify maps an input identity to a field. In card mode a bare "name"
// inside a payment form is the cardholder.
func classify(ident string, card bool) (Field, bool) {
	if skipIdent.MatchString(ident) {
		return "", false
	}
	for _, r := range cardRules {
		if r.match(ident) {
			return r.field, true
		}
	}
	if card {
		switch {
		case genericName.MatchString(ident):
			return CardName, true
		case genericNumber.MatchString(ident):
			return CardNumber, true
		}
		return "", false
	}
	for _, r := range contactRules {
		if r.match(ident) {
			return r.field, true
		}
	}
	return "", false
}

func isCardField(f Field) bool {
	switch f {
	case CardNumber, CardExpiry, CardCVV, CardName, cardExpMonth, cardExpYear:
		return true
	}
	return false
}

var identSeparators = regexp.MustCompile(`[-_\[\]]+`)

// identity gathers what names a form control: name, id, placeholder,
// autocomplete, aria-label and the text of its label.
func identity(doc page.Scope, el page.Element) string {
	parts := []string{}
	for _, a := range []string{"name", "id", "placeholder", "autocomplete", "aria-label", "data-testid"} {
		if v := page.AttrOf(el, a); v != "" {
			parts = append(parts, v)
		}
	}
	if id := page.AttrOf(el, "id"); id != "" {
		if labels, err := doc.Elements(`label[for="` + id + `"]`); err == nil && len(labels) > 0 {
			parts = append(parts, page.TextOf(labels[0]))
		}
	}
	ident := strings.ToLower(strings.Join(parts, " "))
	return identSeparators.ReplaceAllString(ident, " ")
}
