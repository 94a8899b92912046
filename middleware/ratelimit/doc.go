// Package ratelimit fornece os adapters net/http do rate limit por pontos e do
// limite de concorrência do gateway.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (Caller, Classification, Decision, CounterStore)
//   - application: classificador de tiers e orquestração allow/deny, sem net/http
//   - infra: CounterStore no Redis (Lua atômico), versão em memória, stats, semáforo
//   - token: codec JWT do token de acesso
//   - ratelimit (este pacote): extração de IP/Origin/token/usrObj, headers, 429 JSON, métricas
//
// Fluxo por requisição:
//
//  1. Monta o Caller (IP, Origin, token, flag pro, usrObj se tráfego interno)
//  2. Classifica: pro -> bypass; interno -> usrObj ou cota interna; whitelist; token/anônimo
//  3. Consome os pontos no CounterStore (janela fixa, capacidade por janela)
//  4. Sem cota: 429 com o teto floor(capacidade/pontos) na mensagem
//  5. Erro do store: libera (fail-open) e loga
package ratelimit
