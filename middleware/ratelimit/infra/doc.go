// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: janela fixa atômica via script Lua (go-redis)
//   - MemoryCounterStore: mesma semântica em memória, só para um processo
//   - RedisStatsStore / MemoryStatsStore: estatísticas das decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
