package models

// Currency describes a display currency a user can pick.
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
	Locale string `json:"locale"`
	Name   string `json:"name"`
}

// DefaultCurrency is assigned to new users.
const DefaultCurrency = "USD"

// Currencies lists the supported currencies in display order.
var Currencies = []Currency{
	{Code: "USD", Symbol: "$", Locale: "en-US", Name: "Dólar Estadounidense (USD)"},
	{Code: "EUR", Symbol: "€", Locale: "es-ES", Name: "Euro (EUR)"},
	{Code: "MXN", Symbol: "$", Locale: "es-MX", Name: "Peso Mexicano (MXN)"},
	{Code: "COP", Symbol: "$", Locale: "es-CO", Name: "Peso Colombiano (COP)"},
	{Code: "ARS", Symbol: "$", Locale: "es-AR", Name: "Peso Argentino (ARS)"},
	{Code: "CLP", Symbol: "$", Locale: "es-CL", Name: "Peso Chileno (CLP)"},
	{Code: "PEN", Symbol: "S/", Locale: "es-PE", Name: "Sol Peruano (PEN)"},
	{Code: "CRC", Symbol: "₡", Locale: "es-CR", Name: "Colón Costarricense (CRC)"},
	{Code: "GTQ", Symbol: "Q", Locale: "es-GT", Name: "Quetzal Guatemalteco (GTQ)"},
	{Code: "HNL", Symbol: "L", Locale: "es-HN", Name: "Lempira Hondureño (HNL)"},
	{Code: "NIO", Symbol: "C$", Locale: "es-NI", Name: "Córdoba Nicaragüense (NIO)"},
	{Code: "DOP", Symbol: "RD$", Locale: "es-DO", Name: "Peso Dominicano (DOP)"},
	{Code: "PYG", Symbol: "₲", Locale: "es-PY", Name: "Guaraní Paraguayo (PYG)"},
	{Code: "UYU", Symbol: "$", Locale: "es-UY", Name: "Peso Uruguayo (UYU)"},
	{Code: "BOB", Symbol: "Bs.", Locale: "es-BO", Name: "Boliviano (BOB)"},
	{Code: "VES", Symbol: "Bs.", Locale: "es-VE", Name: "Bolívar Venezolano (VES)"},
}

// IsSupportedCurrency reports whether code is in Currencies.
func IsSupportedCurrency(code string) bool {
	for _, c := range Currencies {
		if c.Code == code {
			return true
		}
	}
	return false
}
