package service

// 成长阶段常量，与 growth_levels 查找表的 ID 一一对应
const (
	GrowthSeedling   = 1
	GrowthYoung      = 2
	GrowthMature     = 3
	GrowthFullyGrown = 4
)

var growthLabels = map[int]string{
	GrowthSeedling:   "seedling",
	GrowthYoung:      "young",
	GrowthMature:     "mature",
	GrowthFullyGrown: "fullygrown",
}

// ClassifyGrowth 将连续完成次数映射到成长阶段。
// 阈值：0-5 幼苗，6-15 成长，16-30 成熟，31+ 完全长成。
// 负数属于调用方契约违例，这里钳制为 0 处理。
func ClassifyGrowth(streak int) int {
	if streak < 0 {
		streak = 0
	}

	switch {
	case streak <= 5:
		return GrowthSeedling
	case streak <= 15:
		return GrowthYoung
	case streak <= 30:
		return GrowthMature
	default:
		return GrowthFullyGrown
	}
}

// GrowthLabel 返回成长阶段的展示名称，未知阶段回退到 seedling
func GrowthLabel(level int) string {
	if label, ok := growthLabels[level]; ok {
		return label
	}
	return growthLabels[GrowthSeedling]
}
