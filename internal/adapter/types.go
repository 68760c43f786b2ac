package adapter

// Exchange identifies the source of market data.
type Exchange string

const ExchangeKraken Exchange = "kraken"
