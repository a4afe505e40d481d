package repository

import (
	"testing"
	"time"

	"example.com/kapitallo/backend/internal/models"
)

// TestPromoRedeemable проверяет активность, лимит активаций и срок действия промокода.
func TestPromoRedeemable(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name  string
		promo models.PromoCode
		want  bool
	}{
		{"open", models.PromoCode{IsActive: true, MaxRedemptions: 10, Redemptions: 3}, true},
		{"not expired yet", models.PromoCode{IsActive: true, MaxRedemptions: 1, ExpiresAt: &future}, true},
		{"disabled", models.PromoCode{IsActive: false, MaxRedemptions: 10}, false},
		{"exhausted", models.PromoCode{IsActive: true, MaxRedemptions: 5, Redemptions: 5}, false},
		{"expired", models.PromoCode{IsActive: true, MaxRedemptions: 10, ExpiresAt: &past}, false},
		{"expires exactly now", models.PromoCode{IsActive: true, MaxRedemptions: 10, ExpiresAt: &now}, false},
	}

	for _, tc := range cases {
		if got := promoRedeemable(tc.promo, now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
