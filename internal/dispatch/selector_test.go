package dispatch

import (
	"testing"

	"VoyagerGuard/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestSelectPlan(t *testing.T) {
	t.Run("direct message wins even offline", func(t *testing.T) {
		plan := SelectPlan(Capabilities{HasDirectMessage: true, IsOnline: false})
		assert.Equal(t, []models.Channel{models.ChannelDirectMessage, models.ChannelQueue}, plan)
	})

	t.Run("direct message wins online too", func(t *testing.T) {
		plan := SelectPlan(Capabilities{HasDirectMessage: true, IsOnline: true})
		assert.Equal(t, models.ChannelDirectMessage, plan[0])
		// 直发失败回退到队列，不回退到网络分享
		assert.NotContains(t, plan, models.ChannelNetworkShare)
	})

	t.Run("network share when online without direct message", func(t *testing.T) {
		plan := SelectPlan(Capabilities{HasDirectMessage: false, IsOnline: true})
		assert.Equal(t, []models.Channel{models.ChannelNetworkShare, models.ChannelQueue}, plan)
	})

	t.Run("queue only when fully offline", func(t *testing.T) {
		plan := SelectPlan(Capabilities{HasDirectMessage: false, IsOnline: false})
		assert.Equal(t, []models.Channel{models.ChannelQueue}, plan)
	})
}
