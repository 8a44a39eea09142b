package nitip

import (
	"net/url"
	"strconv"
	"strings"
)

const DefaultMessageTemplate = "Halo {name}, barang titipan Anda di {counter} tersimpan di slot {slot}. Kode pengambilan: {code}"

// InternationalPhone rewrites a local 08xx number into the 628xx form wa.me
// expects.
func InternationalPhone(phone string) string {
	p := strings.TrimPrefix(NormalizePhone(phone), "+")
	if strings.HasPrefix(p, "0") {
		p = "62" + p[1:]
	}
	return p
}

// RenderMessage fills the pickup message template for d.
func RenderMessage(tmpl string, d *Deposit, counter string) string {
	if tmpl == "" {
		tmpl = DefaultMessageTemplate
	}
	return strings.NewReplacer(
		"{name}", d.OwnerName,
		"{slot}", strconv.Itoa(d.Slot),
		"{code}", d.PickupCode,
		"{counter}", counter,
	).Replace(tmpl)
}

// WhatsAppLink opens a chat with the owner pre-filled with the pickup details.
func WhatsAppLink(d *Deposit, tmpl, counter string) string {
	text := strings.ReplaceAll(url.QueryEscape(RenderMessage(tmpl, d, counter)), "+", "%20")
	return "https://wa.me/" + InternationalPhone(d.OwnerPhone) + "?text=" + text
}
