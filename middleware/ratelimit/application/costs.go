package application

import "bch-rest-gateway/middleware/ratelimit/domain"

// CostTable sobrescreve o custo em pontos por tier e resource.
// Sem entrada para o par, vale o custo vindo da classificação.
type CostTable map[domain.Tier]map[domain.Resource]int

func (t CostTable) Points(tier domain.Tier, res domain.Resource, base int) int {
	if byRes, ok := t[tier]; ok {
		if p, ok := byRes[res]; ok && p >= 1 {
			return p
		}
	}
	return base
}
