package contract

// Trimmed ABIs: only the entry points the close flow calls.

const routerABI = `[
  {"type":"function","name":"decreasePosition","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_collateralToken","type":"address"},
    {"name":"_indexToken","type":"address"},
    {"name":"_collateralDelta","type":"uint256"},
    {"name":"_sizeDelta","type":"uint256"},
    {"name":"_isLong","type":"bool"},
    {"name":"_receiver","type":"address"},
    {"name":"_price","type":"uint256"}]},
  {"type":"function","name":"decreasePositionETH","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_collateralToken","type":"address"},
    {"name":"_indexToken","type":"address"},
    {"name":"_collateralDelta","type":"uint256"},
    {"name":"_sizeDelta","type":"uint256"},
    {"name":"_isLong","type":"bool"},
    {"name":"_receiver","type":"address"},
    {"name":"_price","type":"uint256"}]},
  {"type":"function","name":"approvePlugin","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_plugin","type":"address"}]}
]`

const orderBookABI = `[
  {"type":"function","name":"createDecreaseOrder","stateMutability":"payable","outputs":[],"inputs":[
    {"name":"_indexToken","type":"address"},
    {"name":"_sizeDelta","type":"uint256"},
    {"name":"_collateralToken","type":"address"},
    {"name":"_collateralDelta","type":"uint256"},
    {"name":"_isLong","type":"bool"},
    {"name":"_triggerPrice","type":"uint256"},
    {"name":"_triggerAboveThreshold","type":"bool"}]}
]`
