package model

import "github.com/shangmen/shangmen/pkg/errors"

// Matrix 行程时间矩阵（分钟），按全局位置索引寻址
// 出发点与患者共享同一段连续索引 [0, D+P)
type Matrix [][]int

// Size 返回矩阵阶数
func (m Matrix) Size() int {
	return len(m)
}

// At 返回从 i 到 j 的行程时间
func (m Matrix) At(i, j int) int {
	return m[i][j]
}

// checkShape 检查矩阵为 side 阶方阵且元素非负
func (m Matrix) checkShape(side int) error {
	if len(m) != side {
		return errors.Validation(errors.CodeMatrixShape,
			"距离矩阵应有 %d 行，实际 %d 行", side, len(m))
	}
	for i, row := range m {
		if len(row) != side {
			return errors.Validation(errors.CodeMatrixShape,
				"距离矩阵第 %d 行应有 %d 列，实际 %d 列", i, side, len(row))
		}
		for j, d := range row {
			if d < 0 {
				return errors.Validation(errors.CodeMatrixShape,
					"距离矩阵元素 [%d][%d] 为负值 %d", i, j, d)
			}
		}
	}
	return nil
}
