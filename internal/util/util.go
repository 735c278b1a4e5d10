package util

// MaskVoucherCode obscures a voucher code for logging purposes, showing only
// the first and last characters. Codes are bearer credentials for call time
// and must not appear verbatim in logs.
func MaskVoucherCode(code string) string {
	if len(code) > 5 {
		return code[:2] + "..." + code[len(code)-2:]
	} else if len(code) > 2 {
		return code[:1] + "..." + code[len(code)-1:]
	}
	return code
}

// MaskIdentifier obscures a receiver identifier (typically a phone number),
// keeping the trailing digits staff use to disambiguate.
func MaskIdentifier(identifier string) string {
	if len(identifier) > 4 {
		return "..." + identifier[len(identifier)-4:]
	}
	return identifier
}
