package nitip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternationalPhone(t *testing.T) {
	assert.Equal(t, "6281234567890", InternationalPhone("081234567890"))
	assert.Equal(t, "6281234567890", InternationalPhone("+62 812-3456-7890"))
	assert.Equal(t, "6281234567890", InternationalPhone("6281234567890"))
}

func TestRenderMessage(t *testing.T) {
	d := &Deposit{OwnerName: "Budi", Slot: 5, PickupCode: "AB12CD"}

	got := RenderMessage("{name}: slot {slot}, code {code} at {counter}", d, "Mall A")
	assert.Equal(t, "Budi: slot 5, code AB12CD at Mall A", got)

	assert.Contains(t, RenderMessage("", d, "Mall A"), "AB12CD")
}

func TestWhatsAppLink(t *testing.T) {
	d := &Deposit{OwnerName: "Budi", OwnerPhone: "081234567890", Slot: 5, PickupCode: "AB12CD"}

	link := WhatsAppLink(d, "Slot {slot} kode {code}", "Mall A")
	assert.Equal(t, "https://wa.me/6281234567890?text=Slot%205%20kode%20AB12CD", link)
}
