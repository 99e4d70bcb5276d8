package selectors

import "github.com/patrickwarner/rtbengine/internal/models"

// CreativeSelector picks one creative from a campaign's active ads. The boolean
// result is false only when ads is empty.
type CreativeSelector interface {
	SelectAd(ads []models.Ad) (models.Ad, bool)
}
